package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile YAML-описание ассистента. Пустые поля не перекрывают текущие значения.
//
//	model: gpt-4o
//	name: MiAsistente
//	instructions: |
//	  Отвечай кратко.
//	run_instructions: Отвечай как эксперт.
type Profile struct {
	Model           string `yaml:"model"`
	Name            string `yaml:"name"`
	Instructions    string `yaml:"instructions"`
	RunInstructions string `yaml:"run_instructions"`
}

// LoadProfile читает профиль из файла.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read assistant profile: %w", err)
	}

	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("parse assistant profile %s: %w", path, err)
	}
	return p, nil
}

// Apply переносит непустые поля профиля в конфигурацию ассистента.
func (p Profile) Apply(a *AssistantConfig) {
	if v := strings.TrimSpace(p.Model); v != "" {
		a.Model = v
	}
	if v := strings.TrimSpace(p.Name); v != "" {
		a.Name = v
	}
	if v := strings.TrimSpace(p.Instructions); v != "" {
		a.Instructions = v
	}
	if v := strings.TrimSpace(p.RunInstructions); v != "" {
		a.RunInstructions = v
	}
}
