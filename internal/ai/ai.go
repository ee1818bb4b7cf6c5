// Package ai wraps the generation backends used to produce definitions,
// illustrations, pronunciations and quiz questions.
package ai

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by backends that cannot produce a media type.
var ErrNotSupported = errors.New("operation not supported by backend")

// File is generated binary content.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// ImageOptions control image generation.
type ImageOptions struct {
	Size    string // "256x256", "1024x1024", ...
	Style   string // "natural" or "vivid"
	Quality string
}

// SpeechOptions control text-to-speech.
type SpeechOptions struct {
	Voice  string
	Format string // "mp3", "opus", "aac", "flac", "wav"
}

// TextGenerator produces text from a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// MediaGenerator produces images and audio.
type MediaGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (File, error)
	TextToSpeech(ctx context.Context, text string, opts SpeechOptions) (File, error)
}

// Generator is the full set of generation calls. Every call is synchronous
// and may fail independently.
type Generator interface {
	TextGenerator
	MediaGenerator
}

// Split routes text to one backend and media to another, e.g. a local
// Ollama model for text and a hosted API for images and speech.
type Split struct {
	Text  TextGenerator
	Media MediaGenerator
}

func (s Split) GenerateText(ctx context.Context, prompt string) (string, error) {
	return s.Text.GenerateText(ctx, prompt)
}

func (s Split) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (File, error) {
	if s.Media == nil {
		return File{}, ErrNotSupported
	}
	return s.Media.GenerateImage(ctx, prompt, opts)
}

func (s Split) TextToSpeech(ctx context.Context, text string, opts SpeechOptions) (File, error) {
	if s.Media == nil {
		return File{}, ErrNotSupported
	}
	return s.Media.TextToSpeech(ctx, text, opts)
}

var audioContentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/ogg",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"pcm":  "audio/pcm",
}

// AudioContentType maps a speech format to its MIME type.
func AudioContentType(format string) string {
	if ct, ok := audioContentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}
