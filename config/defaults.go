package config

const (
	defaultMemoryFraction = 1.0
	defaultModelFraction  = 0.75
	defaultFlowFraction   = 0.25
	defaultVariant        = "refinement"
	defaultLoss           = "binary_crossentropy"
	defaultLearningRate   = 1e-4
	defaultBaseWidth      = 64
	defaultDropout        = 0.5
	defaultEpochs         = 30
	defaultStepsPerEpoch  = 500
	defaultValSteps       = 100
	defaultBatchSize      = 4
	defaultLogDir         = "logs"
	defaultPrefix         = "maskrefine"
	defaultValSplit       = 0.2
	defaultSeed           = 1
	defaultDataRoot       = "DAVIS"
	defaultResolution     = "480p"
	defaultFlowKind       = "farneback"
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
)

// Default returns a Config populated with the defaults.
func Default() Config {
	return Config{
		Device: Device{
			MemoryFraction: defaultMemoryFraction,
			ModelFraction:  defaultModelFraction,
			FlowFraction:   defaultFlowFraction,
		},
		Model: Model{
			Variant:      defaultVariant,
			Loss:         defaultLoss,
			LearningRate: defaultLearningRate,
			BaseWidth:    defaultBaseWidth,
			Dropout:      defaultDropout,
		},
		Train: Train{
			Epochs:        defaultEpochs,
			StepsPerEpoch: defaultStepsPerEpoch,
			ValSteps:      defaultValSteps,
			BatchSize:     defaultBatchSize,
			LogDir:        defaultLogDir,
			Prefix:        defaultPrefix,
			ValSplit:      defaultValSplit,
			Seed:          defaultSeed,
		},
		Data: Data{
			Root:       defaultDataRoot,
			Resolution: defaultResolution,
		},
		Flow: Flow{
			Kind: defaultFlowKind,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
