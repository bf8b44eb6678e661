package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// schema constrains a configuration document before decoding. Defaults for
// optional fields come from Default(), not from CUE, so a partial document
// only needs the fields it overrides at the line level.
const schema = `
simulation?: {
	tick_interval: string
	step_qty:      int & >0
}
lines?: [...{
	id:              string & !=""
	station:         int & >0
	poll_interval?:  string
	miss_tolerance?: int & >0
	actions:         {[string]: int}
	registers: {
		heartbeat:      string & !=""
		heartbeat_live: int
		mode:           string & !=""
		count:          string & !=""
		done:           string & !=""
	}
}]
`

// Load reads every CUE file in dir, unifies it with the configuration
// schema, and decodes the result on top of the compiled-in defaults.
// Fields the document omits keep their default values.
func Load(dir string) (Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Config{}, fmt.Errorf("config directory: %w", err)
	}
	if !info.IsDir() {
		return Config{}, fmt.Errorf("config path is not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return Config{}, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return Config{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return Config{}, fmt.Errorf("building CUE value: %w", err)
	}
	value = value.Unify(ctx.CompileString(schema))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("validating configuration: %w", err)
	}

	cfg := Default()
	var doc Config
	if err := value.Decode(&doc); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	merge(&cfg, doc)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// merge overlays the decoded document on the defaults. A document that
// provides its own lines replaces the default set entirely; per-line
// optional fields then fall back to the defaults.
func merge(cfg *Config, doc Config) {
	if doc.Simulation.TickInterval != "" {
		cfg.Simulation.TickInterval = doc.Simulation.TickInterval
	}
	if doc.Simulation.StepQty != 0 {
		cfg.Simulation.StepQty = doc.Simulation.StepQty
	}
	if len(doc.Lines) == 0 {
		return
	}
	cfg.Lines = doc.Lines
	for i := range cfg.Lines {
		if cfg.Lines[i].PollInterval == "" {
			cfg.Lines[i].PollInterval = "1s"
		}
		if cfg.Lines[i].MissTolerance == 0 {
			cfg.Lines[i].MissTolerance = 5
		}
	}
}
