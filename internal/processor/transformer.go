package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"mysql-rowchange/internal/config"
	"mysql-rowchange/internal/models"
)

// ErrEventRejected is returned when a JavaScript transform function rejects an event
// by returning null or undefined
var ErrEventRejected = errors.New("event rejected by transformer")

// Transformer reshapes row change events before they are published
type Transformer struct {
	config   *config.ProcessorConfig
	logger   *logrus.Logger
	rules    []*RuleMatcher
	program  *goja.Program
	natsConn *nats.Conn // exposed to scripts as nats.publish, may be nil
}

// RuleMatcher applies include/exclude/rename/add_fields to matching tables
type RuleMatcher struct {
	database  string
	table     string
	include   map[string]bool
	exclude   map[string]bool
	rename    map[string]string
	addFields map[string]string
}

// NewTransformer creates a new transformer with the given configuration
func NewTransformer(cfg *config.ProcessorConfig, logger *logrus.Logger, natsConn *nats.Conn) (*Transformer, error) {
	t := &Transformer{
		config:   cfg,
		logger:   logger,
		natsConn: natsConn,
	}
	if cfg == nil || !cfg.Enabled {
		return t, nil
	}

	if cfg.Script != "" {
		src, err := os.ReadFile(cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("failed to read JavaScript script file: %w", err)
		}
		program, err := compileScript(cfg.Script, string(src))
		if err != nil {
			return nil, fmt.Errorf("invalid JavaScript script: %w", err)
		}
		t.program = program
		logger.Infof("Loaded JavaScript transformation script: %s", cfg.Script)
	}

	for _, rule := range cfg.Rules {
		m := &RuleMatcher{
			database:  rule.Database,
			table:     rule.Table,
			include:   make(map[string]bool, len(rule.Include)),
			exclude:   make(map[string]bool, len(rule.Exclude)),
			rename:    make(map[string]string, len(rule.Rename)),
			addFields: rule.AddFields,
		}
		for _, f := range rule.Include {
			m.include[strings.ToLower(f)] = true
		}
		for _, f := range rule.Exclude {
			m.exclude[strings.ToLower(f)] = true
		}
		for from, to := range rule.Rename {
			m.rename[strings.ToLower(from)] = to
		}
		t.rules = append(t.rules, m)
	}

	return t, nil
}

// compileScript compiles src and checks that it yields a transform function
func compileScript(name, src string) (*goja.Program, error) {
	program, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	vm := goja.New()
	result, err := vm.RunProgram(program)
	if err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}
	if _, ok := transformFunc(vm, result); !ok {
		return nil, fmt.Errorf("script must export a function (either anonymous function or named 'transform' function)")
	}
	return program, nil
}

// transformFunc finds the script's function: either the script's completion
// value or a global named transform
func transformFunc(vm *goja.Runtime, result goja.Value) (goja.Callable, bool) {
	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		if fn, ok := goja.AssertFunction(result); ok {
			return fn, true
		}
	}
	named := vm.Get("transform")
	if named == nil || goja.IsUndefined(named) || goja.IsNull(named) {
		return nil, false
	}
	return goja.AssertFunction(named)
}

// Transform applies the configured script or rules to a change event
func (t *Transformer) Transform(event *models.RowChangeEvent) (*models.RowChangeEvent, error) {
	if t.config == nil || !t.config.Enabled {
		return event, nil
	}
	if t.program != nil {
		return t.transformWithJavaScript(event)
	}
	for _, rule := range t.rules {
		if rule.matches(event.Database, event.Table) {
			return rule.apply(event), nil
		}
	}
	return event, nil
}

func (t *Transformer) transformWithJavaScript(event *models.RowChangeEvent) (*models.RowChangeEvent, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	// goja.Runtime is not safe to reuse across events
	vm := goja.New()
	if err := t.setupBindings(vm); err != nil {
		return nil, err
	}

	result, err := vm.RunProgram(t.program)
	if err != nil {
		return nil, fmt.Errorf("failed to execute JavaScript script: %w", err)
	}
	fn, ok := transformFunc(vm, result)
	if !ok {
		return nil, fmt.Errorf("script must export a function (either anonymous function or named 'transform' function)")
	}

	var arg interface{}
	if err := json.Unmarshal(eventJSON, &arg); err != nil {
		return nil, fmt.Errorf("failed to decode event JSON: %w", err)
	}

	out, err := fn(goja.Undefined(), vm.ToValue(arg))
	if err != nil {
		return nil, fmt.Errorf("JavaScript transform function error: %w", err)
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		t.logger.Infof("Event rejected by JavaScript transformer: %s.%s", event.Database, event.Table)
		return nil, ErrEventRejected
	}

	resultJSON, err := json.Marshal(out.Export())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	transformed := &models.RowChangeEvent{}
	if err := json.Unmarshal(resultJSON, transformed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	// Keep fields the script added that RowChangeEvent does not know about
	transformed.RawJSON = resultJSON

	t.logger.Debugf("JavaScript transformation result: %s", string(resultJSON))
	return transformed, nil
}

// setupBindings exposes console.* and, with a NATS connection, nats.publish
func (t *Transformer) setupBindings(vm *goja.Runtime) error {
	format := func(call goja.FunctionCall) string {
		args := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		return fmt.Sprint(args...)
	}
	logAt := func(level logrus.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			t.logger.Log(level, format(call))
			return goja.Undefined()
		}
	}

	console := vm.NewObject()
	for name, level := range map[string]logrus.Level{
		"log":   logrus.InfoLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"debug": logrus.DebugLevel,
	} {
		if err := console.Set(name, logAt(level)); err != nil {
			return fmt.Errorf("failed to set console.%s: %w", name, err)
		}
	}
	if err := vm.Set("console", console); err != nil {
		return fmt.Errorf("failed to set console object: %w", err)
	}

	if t.natsConn == nil {
		return nil
	}

	natsObj := vm.NewObject()
	publish := func(call goja.FunctionCall) goja.Value {
		subject := call.Argument(0).String()
		data := call.Argument(1)
		if subject == "" || goja.IsUndefined(data) || goja.IsNull(data) {
			panic(vm.NewTypeError("nats.publish: subject and data are required"))
		}

		var payload []byte
		switch v := data.Export().(type) {
		case string:
			payload = []byte(v)
		case []byte:
			payload = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				panic(vm.NewTypeError("nats.publish: failed to marshal data: %v", err))
			}
			payload = b
		}

		if err := t.natsConn.Publish(subject, payload); err != nil {
			t.logger.Errorf("NATS publish error: %v", err)
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	}
	if err := natsObj.Set("publish", publish); err != nil {
		return fmt.Errorf("failed to set publish function: %w", err)
	}
	if err := vm.Set("nats", natsObj); err != nil {
		return fmt.Errorf("failed to set nats object: %w", err)
	}
	return nil
}

// matches checks if a rule matches the given database and table
func (r *RuleMatcher) matches(database, table string) bool {
	if r.database != "" && !strings.EqualFold(r.database, database) {
		return false
	}
	if r.table != "" && !strings.EqualFold(r.table, table) {
		return false
	}
	return true
}

// keep reports whether a column survives the rule and under which name
func (r *RuleMatcher) keep(column string) (string, bool) {
	lower := strings.ToLower(column)
	if len(r.exclude) > 0 && r.exclude[lower] {
		return "", false
	}
	if len(r.include) > 0 && !r.include[lower] {
		return "", false
	}
	if renamed, ok := r.rename[lower]; ok {
		return renamed, true
	}
	return column, true
}

func (r *RuleMatcher) apply(event *models.RowChangeEvent) *models.RowChangeEvent {
	out := *event
	out.Columns = make([]string, 0, len(event.Columns)+len(r.addFields))
	out.Row = make(map[string]interface{}, len(event.Row)+len(r.addFields))
	out.Changed = make([]string, 0, len(event.Changed))

	for _, col := range event.Columns {
		if name, ok := r.keep(col); ok {
			out.Columns = append(out.Columns, name)
			out.Row[name] = event.Row[col]
		}
	}
	for key, v := range r.addFields {
		if _, exists := out.Row[key]; !exists {
			out.Columns = append(out.Columns, key)
		}
		out.Row[key] = v
	}
	for _, col := range event.Changed {
		if name, ok := r.keep(col); ok {
			out.Changed = append(out.Changed, name)
		}
	}
	if event.OldValues != nil {
		out.OldValues = make(map[string]interface{}, len(event.OldValues))
		for col, v := range event.OldValues {
			if name, ok := r.keep(col); ok {
				out.OldValues[name] = v
			}
		}
	}
	return &out
}

// ValidateRules validates processor configuration rules
func ValidateRules(cfg *config.ProcessorConfig) error {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	if cfg.Script != "" {
		if _, err := os.Stat(cfg.Script); os.IsNotExist(err) {
			return fmt.Errorf("JavaScript script file not found: %s", cfg.Script)
		}
	}

	for i, rule := range cfg.Rules {
		if len(rule.Include) > 0 && len(rule.Exclude) > 0 {
			return fmt.Errorf("processor rule %d: cannot specify both 'include' and 'exclude' fields", i)
		}
		if len(rule.Include) == 0 {
			continue
		}
		for oldName := range rule.Rename {
			found := false
			for _, inc := range rule.Include {
				if strings.EqualFold(inc, oldName) {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("processor rule %d: rename key '%s' not found in include list", i, oldName)
			}
		}
	}

	return nil
}
