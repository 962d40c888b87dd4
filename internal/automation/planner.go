package automation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/automail/internal/domain"
)

const dayZero = 24 * time.Hour

// collapseDateTriggers reduces every date-trigger rule in cfg to a single
// days-before-trigger scalar per field, per the §4.5 precedence: an inner
// bound (in_next_days / more_than_days_future, max wins) takes priority
// over less_than_days_future, which is only consulted absent an inner
// bound; in_last_days yields a negative value (days after the anchor).
func collapseDateTriggers(cfg domain.FilterConfig) map[domain.DateTriggerField]int {
	type acc struct {
		hasInner   bool
		inner      int
		outer      int
		hasOuter   bool
		hasAfter   bool
		after      int
	}
	byField := map[domain.DateTriggerField]*acc{}

	for _, group := range cfg.Groups {
		for _, rule := range group.Rules {
			if !domain.IsDateTriggerField(rule.Field) || !domain.IsDateTriggerOperator(rule.Operator) {
				continue
			}
			field := domain.DateTriggerField(rule.Field)
			days, err := strconv.Atoi(strings.TrimSpace(rule.Value))
			if err != nil {
				continue
			}
			a, ok := byField[field]
			if !ok {
				a = &acc{}
				byField[field] = a
			}
			switch rule.Operator {
			case domain.OpInNextDays, domain.OpMoreThanDaysFuture:
				if !a.hasInner || days > a.inner {
					a.inner = days
				}
				a.hasInner = true
			case domain.OpLessThanDaysFuture:
				a.outer = days
				a.hasOuter = true
			case domain.OpInLastDays:
				if !a.hasAfter || days > a.after {
					a.after = days
				}
				a.hasAfter = true
			}
		}
	}

	out := map[domain.DateTriggerField]int{}
	for field, a := range byField {
		switch {
		case a.hasInner:
			out[field] = a.inner
		case a.hasOuter:
			out[field] = a.outer
		case a.hasAfter:
			out[field] = -a.after
		}
	}
	return out
}

// delayDays converts a delay node's duration+unit to a fractional day count.
func delayDays(cfg domain.NodeConfig) float64 {
	switch cfg.Unit {
	case domain.DelayHours:
		return float64(cfg.Duration) / 24.0
	case domain.DelayWeeks:
		return float64(cfg.Duration) * 7
	default: // domain.DelayDays, and any unrecognized unit
		return float64(cfg.Duration)
	}
}

// collectSendEmailNodes walks nodes (following only "yes" branches) and
// appends every send_email node encountered.
func collectSendEmailNodes(nodes []domain.WorkflowNode, out *[]domain.WorkflowNode) {
	for _, node := range nodes {
		if node.Type == domain.NodeSendEmail {
			*out = append(*out, node)
		}
		if yes, ok := node.Branches["yes"]; ok {
			collectSendEmailNodes(yes, out)
		}
	}
}

// buildSchedule performs the depth-first walk described in §4.5 step 6:
// entry_criteria/trigger nodes are skipped, delay nodes accumulate into a
// running offset, and send_email nodes emit a scheduledNode carrying that
// offset. Only "yes" branches are traversed. visited guards against a
// workflow graph that cycles back to a node already walked.
func buildSchedule(nodes []domain.WorkflowNode, startDelay float64, templates map[string]string, visited map[string]bool, out *[]scheduledNode) error {
	runningDelay := startDelay
	for _, node := range nodes {
		if node.ID != "" {
			if visited[node.ID] {
				return fmt.Errorf("cycle detected at node %s", node.ID)
			}
			visited[node.ID] = true
		}

		switch node.Type {
		case domain.NodeDelay:
			runningDelay += delayDays(node.Config)
		case domain.NodeSendEmail:
			if templateID, ok := templates[node.ID]; ok {
				*out = append(*out, scheduledNode{NodeID: node.ID, TemplateID: templateID, DaysOffset: runningDelay})
			}
		}

		if yes, ok := node.Branches["yes"]; ok && len(yes) > 0 {
			if err := buildSchedule(yes, runningDelay, templates, visited, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// triggerTime returns the first trigger node's wall-clock time, "09:00" if
// none is set.
func triggerTime(automation domain.Automation) string {
	for _, n := range automation.Nodes {
		if n.Type == domain.NodeTrigger && n.Config.Time != "" {
			return n.Config.Time
		}
	}
	return "09:00"
}

// wallClockUTC combines a calendar date with an "HH:MM" wall-clock time in
// tz (UTC if tz is empty or unknown) and returns the equivalent UTC instant.
func wallClockUTC(date time.Time, hhmm, tz string) time.Time {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	hour, minute := 9, 0
	if parts := strings.SplitN(hhmm, ":", 2); len(parts) == 2 {
		if h, err := strconv.Atoi(parts[0]); err == nil {
			hour = h
		}
		if m, err := strconv.Atoi(parts[1]); err == nil {
			minute = m
		}
	}
	local := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)
	return local.UTC()
}

// addDays returns t shifted by n days at one-day resolution, rounding a
// fractional offset to the nearest whole day.
func addDays(t time.Time, n float64) time.Time {
	return t.AddDate(0, 0, int(math.Round(n)))
}
