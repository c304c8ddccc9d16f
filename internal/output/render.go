package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/sells-group/wbcard-cli/internal/merge"
	"github.com/sells-group/wbcard-cli/internal/model"
)

const timeLayout = "15:04:05"

// Score formats an optional score; nil renders as "-".
func Score(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Truncate shortens s to n runes with a trailing ellipsis.
func Truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if n <= 0 || len(r) <= n {
		return string(r)
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// LogLine formats one processing log entry.
func LogLine(e model.LogEntry) string {
	return fmt.Sprintf("[%s] %s", e.Timestamp.Local().Format(timeLayout), e.Message)
}

// LiveLog prints stream events as they arrive. It is safe for concurrent
// runs; Prefix tags every line when several articles share the terminal.
type LiveLog struct {
	p      *Printer
	prefix string
	mu     *sync.Mutex
}

// NewLiveLog creates a live log writer.
func NewLiveLog(p *Printer) *LiveLog {
	return &LiveLog{p: p, mu: &sync.Mutex{}}
}

// Prefix returns a copy that tags lines with the article. Copies share one
// lock so interleaved runs never split a line.
func (l *LiveLog) Prefix(article string) *LiveLog {
	return &LiveLog{p: l.p, prefix: article, mu: l.mu}
}

func (l *LiveLog) tag() string {
	if l.prefix == "" {
		return ""
	}
	return l.p.Dim(l.prefix) + " "
}

// OnLog prints a log line.
func (l *LiveLog) OnLog(e model.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.p.out, "%s%s\n", l.tag(), LogLine(e))
}

// OnResult announces the accepted result.
func (l *LiveLog) OnResult(r *model.ResultRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.p.Success("%sresult received for nmID %d (score %s)", l.tag(), r.NmID, Score(r.ValidationScore))
}

// OnError prints a server-reported error.
func (l *LiveLog) OnError(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.p.Error("%s%s", l.tag(), msg)
}

// Sessions renders a session list.
func (p *Printer) Sessions(list []model.Session) error {
	if len(list) == 0 {
		p.Info("No sessions.")
		return nil
	}
	t := NewTable(p.out, "", "ID", "Article", "Status", "Score", "Started", "Error")
	for _, s := range list {
		mark := ""
		if s.Active {
			mark = "*"
		}
		t.AddRow(mark, s.ID, s.Article, p.StatusBadge(string(s.Status)),
			Score(s.ValidationScore), s.StartedAt.Local().Format(time.DateTime), Truncate(s.Error, 40))
	}
	return t.Render()
}

// Session renders one session with its log.
func (p *Printer) Session(s *model.Session) {
	p.Header("Session " + s.ID)
	p.Print("Article:  %s", s.Article)
	p.Print("Status:   %s", p.StatusBadge(string(s.Status)))
	p.Print("Started:  %s", s.StartedAt.Local().Format(time.DateTime))
	if s.Error != "" {
		p.Print("Error:    %s", s.Error)
	}
	if len(s.LogEntries) > 0 {
		p.Header("Log")
		for _, e := range s.LogEntries {
			p.Print("%s", LogLine(e))
		}
	}
}

// Comparison renders the old and new sides of a result with the operator's
// current choice marked on every field.
func (p *Printer) Comparison(r *model.ResultRecord, sel merge.Selection) error {
	p.Header(fmt.Sprintf("Result nmID %d", r.NmID))
	p.Print("Validation score: %s  iterations: %d", Score(r.ValidationScore), r.IterationsDone)
	p.Print("Title score: %s (%d attempts)  description score: %s (%d attempts)",
		Score(r.TitleScore), r.TitleAttempts, Score(r.DescriptionScore), r.DescriptionAttempts)
	for _, w := range r.DescriptionWarnings {
		p.Warning("description: %s", w)
	}

	t := NewTable(p.out, "Field", "Use", "Old", "New")
	t.AddRow("title", p.choice(sel.Title), r.OldTitle, r.NewTitle)
	t.AddRow("description", p.choice(sel.Description), Truncate(r.OldDescription, 50), Truncate(r.NewDescription, 50))
	for _, nc := range r.NewCharacteristics {
		old := "-"
		if oc, ok := model.FindCharacteristic(r.OldCharacteristics, nc.Name); ok {
			old = oc.Value.String()
		}
		t.AddRow(nc.Name, p.choice(sel.ChoiceFor(nc.Name)), old, nc.Value.String())
	}
	return t.Render()
}

func (p *Printer) choice(c merge.Choice) string {
	if c != merge.Old {
		c = merge.New
	}
	if !p.useColors {
		return string(c)
	}
	if c == merge.Old {
		return color.YellowString(string(c))
	}
	return color.GreenString(string(c))
}

// Final renders the merged record.
func (p *Printer) Final(f model.FinalRecord) error {
	p.Header("Final card " + f.Article)
	p.Print("nmID:        %d", f.NmID)
	p.Print("subjectID:   %d", f.SubjectID)
	p.Print("Score:       %s", Score(f.ValidationScore))
	p.Print("Title:       %s", f.Title)
	p.Print("Description: %s", f.Description)
	if len(f.Characteristics) == 0 {
		return nil
	}
	t := NewTable(p.out, "Characteristic", "Value")
	for _, c := range f.Characteristics {
		t.AddRow(c.Name, c.Value.String())
	}
	return t.Render()
}

// Card renders the marketplace's current record.
func (p *Printer) Card(c *model.Card) error {
	p.Header(fmt.Sprintf("Card %d", c.NmID))
	p.Print("Vendor code: %s", c.VendorCode)
	p.Print("Brand:       %s", c.Brand)
	p.Print("Subject:     %s (%d)", c.SubjectName, c.SubjectID)
	p.Print("Title:       %s", c.Title)
	p.Print("Photos:      %d", len(c.Photos))
	if d := c.Dimensions; d != nil {
		p.Print("Dimensions:  %dx%dx%d cm, %s kg", d.Length, d.Width, d.Height,
			strconv.FormatFloat(d.WeightBrutto, 'f', -1, 64))
	}
	if len(c.Characteristics) == 0 {
		return nil
	}
	t := NewTable(p.out, "ID", "Characteristic", "Value")
	for _, ch := range c.Characteristics {
		t.AddRow(strconv.FormatInt(ch.ID, 10), ch.Name, ch.Value.String())
	}
	return t.Render()
}

// Assets renders the generated files of a session.
func (p *Printer) Assets(list []model.Asset) error {
	if len(list) == 0 {
		p.Info("No generated files.")
		return nil
	}
	t := NewTable(p.out, "ID", "Kind", "Source", "File", "URL")
	for _, a := range list {
		t.AddRow(a.ID, string(a.Kind), a.Source, a.FileName, a.FileURL)
	}
	return t.Render()
}

// Rows renders an ad-hoc table; used for backend listings that have no
// dedicated renderer.
func Rows(w io.Writer, headers []string, rows [][]string) error {
	t := NewTable(w, headers...)
	for _, r := range rows {
		t.AddRow(r...)
	}
	return t.Render()
}
