// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config persists user settings, each under its own localstore key,
// mirroring the per-key layout of the original app. API keys additionally
// fall back to environment variables.
package config

import (
	"fmt"
	"os"

	"github.com/henshin-ai/henshin/pkg/localstore"
	"github.com/henshin-ai/henshin/pkg/mailgen"
)

// Localstore keys. The key names match the original storage layout.
const (
	KeyOpenAIAPIKey    = "openai_api_key"
	KeyGeminiAPIKey    = "gemini_api_key"
	KeyAnthropicAPIKey = "claude_api_key"
	KeyModel           = "model"
	KeySystemPrompt    = "system_prompt"
	KeySignatures      = "signatures"
	KeyStyleExamples   = "style_examples"
	KeyTone            = "tone"
	KeyLength          = "length"
)

// DefaultModel is used when no model preference is stored or given.
const DefaultModel = "gpt-4o"

// Settings are the stored preferences threaded into the adapter by the CLI.
type Settings struct {
	Model         string
	SystemPrompt  string
	Signatures    string
	StyleExamples []string
	Tone          *int
	Length        *int
	Keys          mailgen.APIKeys
}

// Load reads all settings from the store, applying environment fallbacks for
// the API keys (OPENAI_API_KEY, GEMINI_API_KEY, ANTHROPIC_API_KEY).
func Load(kv *localstore.Store) (*Settings, error) {
	s := &Settings{Model: DefaultModel}

	for key, dst := range map[string]*string{
		KeyModel:           &s.Model,
		KeySystemPrompt:    &s.SystemPrompt,
		KeySignatures:      &s.Signatures,
		KeyOpenAIAPIKey:    &s.Keys.OpenAI,
		KeyGeminiAPIKey:    &s.Keys.Gemini,
		KeyAnthropicAPIKey: &s.Keys.Anthropic,
	} {
		if _, err := kv.Get(key, dst); err != nil {
			return nil, err
		}
	}
	if _, err := kv.Get(KeyStyleExamples, &s.StyleExamples); err != nil {
		return nil, err
	}
	for key, dst := range map[string]**int{
		KeyTone:   &s.Tone,
		KeyLength: &s.Length,
	} {
		var v int
		ok, err := kv.Get(key, &v)
		if err != nil {
			return nil, err
		}
		if ok {
			*dst = &v
		}
	}

	if s.Keys.OpenAI == "" {
		s.Keys.OpenAI = os.Getenv("OPENAI_API_KEY")
	}
	if s.Keys.Gemini == "" {
		s.Keys.Gemini = os.Getenv("GEMINI_API_KEY")
	}
	if s.Keys.Anthropic == "" {
		s.Keys.Anthropic = os.Getenv("ANTHROPIC_API_KEY")
	}
	return s, nil
}

// KeyForProvider returns the localstore key holding a provider's credential.
func KeyForProvider(p mailgen.Provider) (string, error) {
	switch p {
	case mailgen.ProviderOpenAI:
		return KeyOpenAIAPIKey, nil
	case mailgen.ProviderGemini:
		return KeyGeminiAPIKey, nil
	case mailgen.ProviderAnthropic:
		return KeyAnthropicAPIKey, nil
	default:
		return "", fmt.Errorf("unknown provider %q", p)
	}
}

// SetAPIKey stores a provider credential.
func SetAPIKey(kv *localstore.Store, p mailgen.Provider, apiKey string) error {
	key, err := KeyForProvider(p)
	if err != nil {
		return err
	}
	return kv.Set(key, apiKey)
}
