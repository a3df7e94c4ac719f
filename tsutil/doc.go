// Package tsutil holds small tensor helpers shared by the mask refinement
// pipeline: shape validation, padding to the network's spatial alignment
// and optical-flow normalisation.
//
// All helpers accept channel-first tensors, either a single sample (CHW)
// or a batch (NCHW).
package tsutil
