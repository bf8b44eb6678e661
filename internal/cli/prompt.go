package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/suk-kr/shopfloor/internal/model"
)

// PromptDecider implements fulfillment.Decider and fulfillment.Notifier over
// an interactive terminal. Answers are read line by line; an EOF or blank
// answer declines, matching the original tool's cancelable dialogs.
type PromptDecider struct {
	In  *bufio.Reader
	Out io.Writer
}

// NewPromptDecider wraps a reader/writer pair for interactive prompting.
func NewPromptDecider(in io.Reader, out io.Writer) *PromptDecider {
	return &PromptDecider{In: bufio.NewReader(in), Out: out}
}

// Confirm asks a yes/no question. Only an explicit "y"/"yes" accepts.
func (p *PromptDecider) Confirm(prompt string) bool {
	fmt.Fprintf(p.Out, "%s [y/N]: ", prompt)
	line, err := p.In.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// RequestPlan collects the production plan for a stock shortfall: line,
// shift, quantity and planned date. Empty answers take the shown default;
// answering "q" at any field declines the whole plan.
func (p *PromptDecider) RequestPlan(contract model.Contract, shortfall int) (model.PlanRequest, bool) {
	fmt.Fprintf(p.Out, "Production plan for contract %s (%s), shortfall %d. Enter q to cancel.\n",
		contract.OrderNumber, contract.ProductName, shortfall)

	qty, ok := p.askInt("  quantity", shortfall)
	if !ok {
		return model.PlanRequest{}, false
	}
	line, ok := p.ask("  line", "line-1")
	if !ok {
		return model.PlanRequest{}, false
	}
	shift, ok := p.ask("  shift", "day-1")
	if !ok {
		return model.PlanRequest{}, false
	}
	date, ok := p.askDate("  planned date", time.Now())
	if !ok {
		return model.PlanRequest{}, false
	}

	return model.PlanRequest{
		Quantity:    qty,
		Line:        line,
		Shift:       shift,
		Mode:        model.ModeAutomatic,
		PlannedDate: date,
	}, true
}

// Notify prints an operator-facing message.
func (p *PromptDecider) Notify(format string, args ...any) {
	fmt.Fprintf(p.Out, format+"\n", args...)
}

func (p *PromptDecider) ask(label, def string) (string, bool) {
	fmt.Fprintf(p.Out, "%s [%s]: ", label, def)
	line, err := p.In.ReadString('\n')
	if err != nil {
		return "", false
	}
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "q") {
		return "", false
	}
	if line == "" {
		return def, true
	}
	return line, true
}

func (p *PromptDecider) askInt(label string, def int) (int, bool) {
	for {
		answer, ok := p.ask(label, strconv.Itoa(def))
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(answer)
		if err != nil || n <= 0 {
			fmt.Fprintln(p.Out, "  enter a positive number")
			continue
		}
		return n, true
	}
}

func (p *PromptDecider) askDate(label string, def time.Time) (time.Time, bool) {
	for {
		answer, ok := p.ask(label, def.Format("2006-01-02"))
		if !ok {
			return time.Time{}, false
		}
		t, err := time.Parse("2006-01-02", answer)
		if err != nil {
			fmt.Fprintln(p.Out, "  enter a date as YYYY-MM-DD")
			continue
		}
		return t, true
	}
}
