package lbph

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

const (
	artifactFormat  = "lbph"
	artifactVersion = 1
)

// ErrCorruptArtifact is returned when a serialized model cannot be decoded.
var ErrCorruptArtifact = errors.New("corrupt model artifact")

type artifact struct {
	Format     string   `yaml:"format"`
	Version    int      `yaml:"version"`
	Params     Params   `yaml:"params"`
	Labels     []int    `yaml:"labels"`
	Histograms []string `yaml:"histograms"`
}

// Encode writes the recognizer as YAML. Histograms are stored as base64
// little-endian float32 so a decode reproduces them bit for bit.
func (r *Recognizer) Encode(w io.Writer) error {
	a := artifact{
		Format:     artifactFormat,
		Version:    artifactVersion,
		Params:     r.params,
		Labels:     r.labels,
		Histograms: make([]string, len(r.histograms)),
	}
	for i, h := range r.histograms {
		a.Histograms[i] = packFloats(h)
	}

	enc := yaml.NewEncoder(w)
	if err := enc.Encode(&a); err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flushing model: %w", err)
	}
	return nil
}

// Decode reads a recognizer written by Encode.
func Decode(rd io.Reader) (*Recognizer, error) {
	var a artifact
	if err := yaml.NewDecoder(rd).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	if a.Format != artifactFormat || a.Version != artifactVersion {
		return nil, fmt.Errorf("%w: unsupported format %q version %d", ErrCorruptArtifact, a.Format, a.Version)
	}
	if err := a.Params.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	if len(a.Labels) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, ErrNoSamples)
	}
	if len(a.Labels) != len(a.Histograms) {
		return nil, fmt.Errorf("%w: %d labels but %d histograms", ErrCorruptArtifact, len(a.Labels), len(a.Histograms))
	}

	want := a.Params.histogramLen()
	histograms := make([][]float32, len(a.Histograms))
	for i, s := range a.Histograms {
		h, err := unpackFloats(s)
		if err != nil {
			return nil, fmt.Errorf("%w: histogram %d: %w", ErrCorruptArtifact, i, err)
		}
		if len(h) != want {
			return nil, fmt.Errorf("%w: histogram %d has %d bins, want %d", ErrCorruptArtifact, i, len(h), want)
		}
		histograms[i] = h
	}

	return newRecognizer(a.Params, a.Labels, histograms), nil
}

func packFloats(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func unpackFloats(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}
