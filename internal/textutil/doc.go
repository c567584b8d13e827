// Package textutil provides small text helpers shared across the pipeline,
// currently filename sanitization for downloaded episode audio.
package textutil
