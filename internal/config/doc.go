// Package config decodes HCL build files.
//
// A build file names one model architecture, the lowering target and the
// output package:
//
//	model "b6c96" {
//	  version          = 8
//	  trunk_channels   = 96
//	  mid_channels     = 96
//	  regular_channels = 64
//	  gpool_channels   = 32
//	  p1_channels      = 32
//	  g1_channels      = 32
//	  v1_channels      = 32
//	  v2_channels      = 64
//	  activation       = "relu"
//
//	  block "ordinary" {}
//	  block "gpool" {}
//	  block "nested_bottleneck" {
//	    block "ordinary" {}
//	  }
//	}
//
//	build {
//	  board_x = var.board
//	  board_y = var.board
//	}
//
//	package {
//	  output    = "b6c96.mlpackage"
//	  overwrite = true
//	}
//
// Optional model attributes and their defaults: activation "relu",
// initial_conv_size 5, block_conv_size 3 and epsilon 0.001. An explicit
// epsilon must be positive. A post_process block overrides individual
// multipliers; the rest keep their standard values.
//
// Variables passed to Load are visible as var.<name>.
package config
