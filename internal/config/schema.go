package config

// fileRoot holds every top-level block of a build file.
type fileRoot struct {
	Models   []*modelBlock `hcl:"model,block"`
	Build    *buildBlock   `hcl:"build,block"`
	Packages []*pkgBlock   `hcl:"package,block"`
}

type modelBlock struct {
	Name               string `hcl:"name,label"`
	SHA256             string `hcl:"sha256,optional"`
	Version            int    `hcl:"version"`
	MetaEncoderVersion int    `hcl:"meta_encoder_version,optional"`

	TrunkChannels      int `hcl:"trunk_channels"`
	MidChannels        int `hcl:"mid_channels"`
	RegularChannels    int `hcl:"regular_channels"`
	GPoolChannels      int `hcl:"gpool_channels"`
	MetaHiddenChannels int `hcl:"meta_hidden_channels,optional"`
	P1Channels         int `hcl:"p1_channels"`
	G1Channels         int `hcl:"g1_channels"`
	PassChannels       int `hcl:"pass_channels,optional"`
	V1Channels         int `hcl:"v1_channels"`
	V2Channels         int `hcl:"v2_channels"`

	InitialConvSize int      `hcl:"initial_conv_size,optional"`
	BlockConvSize   int      `hcl:"block_conv_size,optional"`
	Activation      string   `hcl:"activation,optional"`
	Epsilon         *float64 `hcl:"epsilon,optional"`

	Blocks      []*blockBlock     `hcl:"block,block"`
	PostProcess *postProcessBlock `hcl:"post_process,block"`
}

type blockBlock struct {
	Kind   string        `hcl:"kind,label"`
	Blocks []*blockBlock `hcl:"block,block"`
}

type postProcessBlock struct {
	TDScoreMultiplier             *float64 `hcl:"td_score_multiplier,optional"`
	ScoreMeanMultiplier           *float64 `hcl:"score_mean_multiplier,optional"`
	ScoreStdevMultiplier          *float64 `hcl:"score_stdev_multiplier,optional"`
	LeadMultiplier                *float64 `hcl:"lead_multiplier,optional"`
	VarianceTimeMultiplier        *float64 `hcl:"variance_time_multiplier,optional"`
	ShorttermValueErrorMultiplier *float64 `hcl:"shortterm_value_error_multiplier,optional"`
	ShorttermScoreErrorMultiplier *float64 `hcl:"shortterm_score_error_multiplier,optional"`
}

type buildBlock struct {
	Batch                *int    `hcl:"batch,optional"`
	BoardX               *int    `hcl:"board_x,optional"`
	BoardY               *int    `hcl:"board_y,optional"`
	SpecificationVersion *int    `hcl:"specification_version,optional"`
	Weights              *string `hcl:"weights,optional"`
}

type pkgBlock struct {
	Output        string `hcl:"output,optional"`
	Author        string `hcl:"author,optional"`
	Description   string `hcl:"description,optional"`
	License       string `hcl:"license,optional"`
	VersionString string `hcl:"version_string,optional"`
	Overwrite     bool   `hcl:"overwrite,optional"`
}
