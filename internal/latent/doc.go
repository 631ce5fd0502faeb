// Package latent implements a Latent ODE: a variational autoencoder whose
// encoder is a GRU run backwards over an irregularly sampled trajectory and
// whose decoder integrates a learned vector field through the
// trajectory's own observation times.
//
// Parameters live in an immutable nn.Params value. Every forward pass binds
// them to a fresh autodiff tape, so batch elements can be evaluated
// concurrently and gradients are collected per element.
package latent
