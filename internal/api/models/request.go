package models

// BatteryConfig defines cell constants; zero fields keep the preset's values
type BatteryConfig struct {
	Name                string  `json:"name,omitempty"`
	CapacityAh          float64 `json:"capacity_ah,omitempty"`
	ChargeEfficiency    float64 `json:"charge_efficiency,omitempty"`
	DischargeEfficiency float64 `json:"discharge_efficiency,omitempty"`
	SurfaceAreaM2       float64 `json:"surface_area_m2,omitempty"`
	SpecificHeat        float64 `json:"specific_heat,omitempty"`
	ConvectiveCoeff     float64 `json:"convective_coeff,omitempty"`
	MassKg              float64 `json:"mass_kg,omitempty"`
	AmbientK            float64 `json:"ambient_k,omitempty"`
}

// FitOptions selects the relaxation model and solver budget
type FitOptions struct {
	Kind          string `json:"kind,omitempty"`  // "ttc" (default) or "otc"
	Seeds         string `json:"seeds,omitempty"` // "cell" or "module"; default by layout
	Workers       int    `json:"workers,omitempty"`
	Strict        bool   `json:"strict,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// BuildModelRequest represents the request body for fitting a model to a dataset
type BuildModelRequest struct {
	DatasetID   string        `json:"dataset_id" binding:"required"`
	Layout      string        `json:"layout,omitempty"` // default: the dataset's layout
	BatteryFile string        `json:"battery_file,omitempty"`
	Battery     BatteryConfig `json:"battery,omitempty"`
	Fit         FitOptions    `json:"fit,omitempty"`
	Name        string        `json:"name,omitempty"`
}

// Step is one constant-current step of a profile
type Step struct {
	Current  float64 `json:"current"`
	Duration float64 `json:"duration" binding:"required,gt=0"`
}

// ProfileRequest is a current profile: a compact schedule string, explicit
// steps, or raw samples
type ProfileRequest struct {
	Schedule string    `json:"schedule,omitempty"` // e.g. "0@10,-30@360,0@600"
	Steps    []Step    `json:"steps,omitempty"`
	Time     []float64 `json:"time,omitempty"`
	Current  []float64 `json:"current,omitempty"`
	Dt       float64   `json:"dt,omitempty"` // default: 1 s
}

// SimulateRequest represents the request body for running a model
type SimulateRequest struct {
	Profile ProfileRequest `json:"profile"`
	// DatasetID replays a dataset's current and compares against its voltage
	DatasetID    string  `json:"dataset_id,omitempty"`
	InitialSOC   *float64 `json:"initial_soc,omitempty"` // default: 1
	IncludeTrace bool    `json:"include_trace,omitempty"`
}

// PackRequest represents the request body for a pack simulation
type PackRequest struct {
	Series              int            `json:"series" binding:"required,gt=0"`
	Parallel            int            `json:"parallel" binding:"required,gt=0"`
	SOCMin              float64        `json:"soc_min,omitempty"` // default: 0.95
	SOCMax              float64        `json:"soc_max,omitempty"` // default: 1.0
	Seed                uint64         `json:"seed,omitempty"`
	InitialTemperatureK float64        `json:"initial_temperature_k,omitempty"`
	Profile             ProfileRequest `json:"profile"`
	IncludeCells        bool           `json:"include_cells,omitempty"`
}

// SplitRequest represents the request body for a parallel current split
type SplitRequest struct {
	Current []float64   `json:"current" binding:"required"`
	OCV     [][]float64 `json:"ocv" binding:"required"`
	R0      [][]float64 `json:"r0" binding:"required"`
}
