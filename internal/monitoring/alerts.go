package monitoring

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/opcore/internal/metrics"
)

// DefaultCooldown applies to rules added without a cooldown.
const DefaultCooldown = 5 * time.Minute

// defaultWindow applies to windowed aggregates added without a window
const defaultWindow = time.Minute

// Aggregate selects how a rule reduces a metric to one value.
type Aggregate string

// Supported aggregates
const (
	// AggregateLatest uses the most recent sample
	AggregateLatest Aggregate = "latest"
	// AggregateCount counts samples within the rule window
	AggregateCount Aggregate = "count"
	// AggregateAvg averages samples within the rule window
	AggregateAvg Aggregate = "avg"
	// AggregateMax takes the largest sample within the rule window
	AggregateMax Aggregate = "max"
)

// AlertRule fires when Condition holds for the aggregated value of Metric.
// Message may contain a {value} placeholder.
type AlertRule struct {
	Name      string
	Metric    string
	Aggregate Aggregate
	Window    time.Duration
	Condition func(value float64) bool
	Message   string
	Cooldown  time.Duration
}

// Above returns a condition that holds for values greater than limit.
func Above(limit float64) func(float64) bool {
	return func(v float64) bool { return v > limit }
}

// Alert is one rule firing.
type Alert struct {
	Rule        string    `json:"rule"`
	Metric      string    `json:"metric"`
	Value       float64   `json:"value"`
	Message     string    `json:"message"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// AlertHandler is notified of every alert. Errors are logged and otherwise ignored.
type AlertHandler func(rule, message string) error

type ruleState struct {
	rule          AlertRule
	lastTriggered time.Time
}

// AlertManager evaluates alert rules against a metrics.Collector and
// notifies handlers, firing each rule at most once per cooldown.
type AlertManager struct {
	metrics     *metrics.Collector
	logger      *slog.Logger
	alertLogger *slog.Logger

	mu       sync.Mutex
	rules    map[string]*ruleState
	handlers []AlertHandler
}

// NewAlertManager creates a manager without rules. Alerts are written to
// alertLogger, or to logger when alertLogger is nil.
func NewAlertManager(collector *metrics.Collector, logger, alertLogger *slog.Logger) *AlertManager {
	logger = logger.With("component", "alert_manager")
	if alertLogger == nil {
		alertLogger = logger
	}
	return &AlertManager{
		metrics:     collector,
		logger:      logger,
		alertLogger: alertLogger,
		rules:       make(map[string]*ruleState),
	}
}

// DefaultRules returns the built-in rules for cpu, memory and error rate.
func DefaultRules() []AlertRule {
	return []AlertRule{
		{
			Name:      "high_cpu",
			Metric:    "system_cpu_percent",
			Aggregate: AggregateLatest,
			Condition: Above(80),
			Message:   "CPU usage is above 80%: {value}%",
		},
		{
			Name:      "high_memory",
			Metric:    "system_memory_percent",
			Aggregate: AggregateLatest,
			Condition: Above(85),
			Message:   "Memory usage is above 85%: {value}%",
		},
		{
			Name:      "high_error_rate",
			Metric:    ErrorsMetric,
			Aggregate: AggregateCount,
			Window:    time.Minute,
			Condition: Above(10),
			Message:   "Error rate is above 10 errors/minute: {value}",
		},
	}
}

// AddDefaultRules adds every rule from DefaultRules.
func (a *AlertManager) AddDefaultRules() {
	for _, rule := range DefaultRules() {
		a.AddRule(rule)
	}
}

// AddRule adds rule, replacing any rule with the same name and resetting
// its cooldown.
func (a *AlertManager) AddRule(rule AlertRule) {
	if rule.Cooldown <= 0 {
		rule.Cooldown = DefaultCooldown
	}
	if rule.Aggregate == "" {
		rule.Aggregate = AggregateLatest
	}
	if rule.Window <= 0 {
		rule.Window = defaultWindow
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules[rule.Name] = &ruleState{rule: rule}
}

// RemoveRule deletes the named rule and reports whether it existed.
func (a *AlertManager) RemoveRule(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.rules[name]
	delete(a.rules, name)
	return ok
}

// Rules returns the configured rules sorted by name.
func (a *AlertManager) Rules() []AlertRule {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]AlertRule, 0, len(a.rules))
	for _, st := range a.rules {
		out = append(out, st.rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddHandler registers a handler called for every alert.
func (a *AlertManager) AddHandler(handler AlertHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, handler)
}

// CheckAlerts evaluates every rule whose cooldown has elapsed at now and
// returns the alerts that fired. Handlers run after all rules are evaluated.
func (a *AlertManager) CheckAlerts(now time.Time) []Alert {
	candidates := a.dueRules(now)

	var fired []Alert
	for _, rule := range candidates {
		value, ok := a.value(rule)
		if !ok || rule.Condition == nil || !rule.Condition(value) {
			continue
		}
		if !a.markTriggered(rule.Name, now) {
			continue
		}

		alert := Alert{
			Rule:        rule.Name,
			Metric:      rule.Metric,
			Value:       value,
			Message:     formatMessage(rule.Message, value),
			TriggeredAt: now,
		}
		a.alertLogger.Warn("ALERT",
			"rule", alert.Rule,
			"metric", alert.Metric,
			"value", alert.Value,
			"message", alert.Message)
		fired = append(fired, alert)
	}

	if len(fired) == 0 {
		return nil
	}

	a.mu.Lock()
	handlers := append([]AlertHandler(nil), a.handlers...)
	a.mu.Unlock()

	for _, alert := range fired {
		for _, handler := range handlers {
			a.notify(handler, alert)
		}
	}
	return fired
}

// dueRules returns the rules out of cooldown at now, sorted by name
func (a *AlertManager) dueRules(now time.Time) []AlertRule {
	a.mu.Lock()
	defer a.mu.Unlock()

	var due []AlertRule
	for _, st := range a.rules {
		if st.inCooldown(now) {
			continue
		}
		due = append(due, st.rule)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })
	return due
}

// markTriggered records that the rule fired at now. It returns false if the
// rule was removed or fired concurrently since dueRules.
func (a *AlertManager) markTriggered(name string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.rules[name]
	if !ok || st.inCooldown(now) {
		return false
	}
	st.lastTriggered = now
	return true
}

func (st *ruleState) inCooldown(now time.Time) bool {
	return !st.lastTriggered.IsZero() && now.Sub(st.lastTriggered) < st.rule.Cooldown
}

func (a *AlertManager) value(rule AlertRule) (float64, bool) {
	switch rule.Aggregate {
	case AggregateCount:
		summary, _ := a.metrics.Summary(rule.Metric, rule.Window)
		return float64(summary.Count), true
	case AggregateAvg:
		summary, ok := a.metrics.Summary(rule.Metric, rule.Window)
		return summary.Avg, ok
	case AggregateMax:
		summary, ok := a.metrics.Summary(rule.Metric, rule.Window)
		return summary.Max, ok
	default:
		sample, ok := a.metrics.Latest(rule.Metric)
		return sample.Value, ok
	}
}

// notify calls handler, logging instead of propagating errors and panics
func (a *AlertManager) notify(handler AlertHandler, alert Alert) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("alert handler panicked",
				"rule", alert.Rule,
				"error", fmt.Sprintf("%v", rec))
		}
	}()

	if err := handler(alert.Rule, alert.Message); err != nil {
		a.logger.Error("alert handler failed",
			"rule", alert.Rule,
			"error", err)
	}
}

func formatMessage(template string, value float64) string {
	return strings.ReplaceAll(template, "{value}", strconv.FormatFloat(value, 'f', -1, 64))
}
