// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// IdeaMode selects the flavour of ideas requested from the generator.
type IdeaMode string

const (
	IdeaModeViral IdeaMode = "viral"
	IdeaModeSales IdeaMode = "sales"
)

// ParseIdeaMode defaults to viral when the input is empty.
func ParseIdeaMode(in string) (IdeaMode, error) {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "", "viral":
		return IdeaModeViral, nil
	case "sales", "vendas":
		return IdeaModeSales, nil
	}
	return "", NewValidationError("mode", fmt.Sprintf("unsupported idea mode %q", in))
}

// ContentIdea is a structural concept proposed as the basis of a new post.
type ContentIdea struct {
	Title             string `json:"title"`
	StructuralPattern string `json:"structural_pattern"`
	Rationale         string `json:"rationale"`
}

// UnmarshalJSON also accepts the legacy keys titulo, estrutura and
// por_que_funciona.
func (i *ContentIdea) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title             string `json:"title"`
		StructuralPattern string `json:"structural_pattern"`
		Rationale         string `json:"rationale"`
		Titulo            string `json:"titulo"`
		Estrutura         string `json:"estrutura"`
		PorQueFunciona    string `json:"por_que_funciona"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.Title = firstNonEmpty(raw.Title, raw.Titulo)
	i.StructuralPattern = firstNonEmpty(raw.StructuralPattern, raw.Estrutura)
	i.Rationale = firstNonEmpty(raw.Rationale, raw.PorQueFunciona)
	return nil
}

// Validate only insists on a title; models often omit the explanation fields.
func (i *ContentIdea) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return NewValidationError("title", "required")
	}
	return nil
}

// ContentIdeas is the validated list returned by idea generation.
type ContentIdeas []ContentIdea

func (ideas ContentIdeas) Validate() error {
	if len(ideas) == 0 {
		return NewValidationError("ideas", "empty list")
	}
	for n := range ideas {
		if err := ideas[n].Validate(); err != nil {
			return fmt.Errorf("idea %d: %w", n+1, err)
		}
	}
	return nil
}

// CarouselMeta summarises a generated carousel.
type CarouselMeta struct {
	Complexity  string `json:"complexity"`
	TotalSlides int    `json:"total_slides"`
	Theme       string `json:"theme"`
}

func (m *CarouselMeta) UnmarshalJSON(data []byte) error {
	var raw struct {
		Complexity            string `json:"complexity"`
		TotalSlides           int    `json:"total_slides"`
		Theme                 string `json:"theme"`
		ComplexidadeDetectada string `json:"complexidade_detectada"`
		Tema                  string `json:"tema"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Complexity = firstNonEmpty(raw.Complexity, raw.ComplexidadeDetectada)
	m.TotalSlides = raw.TotalSlides
	m.Theme = firstNonEmpty(raw.Theme, raw.Tema)
	return nil
}

// Slide is one panel of a carousel script.
type Slide struct {
	PanelNumber int    `json:"panel_number"`
	Phase       string `json:"phase"`
	Text        string `json:"text"`
	DesignNote  string `json:"design_note"`
}

func (s *Slide) UnmarshalJSON(data []byte) error {
	var raw struct {
		PanelNumber    *int   `json:"panel_number"`
		Phase          string `json:"phase"`
		Text           string `json:"text"`
		DesignNote     string `json:"design_note"`
		Painel         *int   `json:"painel"`
		Fase           string `json:"fase"`
		Texto          string `json:"texto"`
		NotaEngenharia string `json:"nota_engenharia"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.PanelNumber != nil:
		s.PanelNumber = *raw.PanelNumber
	case raw.Painel != nil:
		s.PanelNumber = *raw.Painel
	}
	s.Phase = firstNonEmpty(raw.Phase, raw.Fase)
	s.Text = firstNonEmpty(raw.Text, raw.Texto)
	s.DesignNote = firstNonEmpty(raw.DesignNote, raw.NotaEngenharia)
	return nil
}

// CarouselScript is an ordered list of slides plus its meta block.
type CarouselScript struct {
	Meta   CarouselMeta `json:"meta"`
	Slides []Slide      `json:"slides"`
}

func (c *CarouselScript) UnmarshalJSON(data []byte) error {
	var raw struct {
		Meta      *CarouselMeta `json:"meta"`
		Slides    []Slide       `json:"slides"`
		MetaDados *CarouselMeta `json:"meta_dados"`
		Carrossel []Slide       `json:"carrossel"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Meta != nil:
		c.Meta = *raw.Meta
	case raw.MetaDados != nil:
		c.Meta = *raw.MetaDados
	}
	c.Slides = raw.Slides
	if len(c.Slides) == 0 {
		c.Slides = raw.Carrossel
	}
	return nil
}

// Validate checks the slide order and contents. A missing or wrong
// total_slides is corrected rather than rejected.
func (c *CarouselScript) Validate() error {
	if len(c.Slides) == 0 {
		return NewValidationError("slides", "empty list")
	}
	previous := 0
	for n, slide := range c.Slides {
		if slide.PanelNumber <= previous {
			return NewValidationError("slides", fmt.Sprintf("slide %d: panel_number %d is not increasing", n+1, slide.PanelNumber))
		}
		if strings.TrimSpace(slide.Text) == "" {
			return NewValidationError("slides", fmt.Sprintf("slide %d: text is required", n+1))
		}
		previous = slide.PanelNumber
	}
	c.Meta.TotalSlides = len(c.Slides)
	return nil
}

// TrendIdea is one topical pitch returned by the trends generator.
type TrendIdea struct {
	Title string `json:"title"`
	Hype  string `json:"hype"`
	Hook  string `json:"hook"`
}

func (t *TrendIdea) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title  string `json:"title"`
		Hype   string `json:"hype"`
		Hook   string `json:"hook"`
		Titulo string `json:"titulo"`
		Gancho string `json:"gancho"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Title = firstNonEmpty(raw.Title, raw.Titulo)
	t.Hype = raw.Hype
	t.Hook = firstNonEmpty(raw.Hook, raw.Gancho)
	return nil
}

// TrendIdeas is the validated list returned by trend generation.
type TrendIdeas []TrendIdea

func (trends TrendIdeas) Validate() error {
	if len(trends) == 0 {
		return NewValidationError("trends", "empty list")
	}
	for n, trend := range trends {
		if strings.TrimSpace(trend.Title) == "" {
			return NewValidationError("trends", fmt.Sprintf("trend %d: title is required", n+1))
		}
	}
	return nil
}

// HookAnalysis is the document returned by verbal hook analysis.
type HookAnalysis struct {
	VerbalHook string `json:"verbal_hook"`
	VisualHook string `json:"visual_hook,omitempty"`
}

func (h *HookAnalysis) UnmarshalJSON(data []byte) error {
	var raw struct {
		VerbalHook     json.RawMessage `json:"verbal_hook"`
		VisualHook     json.RawMessage `json:"visual_hook"`
		GanchosVerbais json.RawMessage `json:"ganchos_verbais"`
		GanchosVisuais json.RawMessage `json:"ganchos_visuais"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.VerbalHook = firstNonEmpty(flattenText(raw.VerbalHook), flattenText(raw.GanchosVerbais))
	h.VisualHook = firstNonEmpty(flattenText(raw.VisualHook), flattenText(raw.GanchosVisuais))
	return nil
}

func (h *HookAnalysis) Validate() error {
	if strings.TrimSpace(h.VerbalHook) == "" {
		return NewValidationError("verbal_hook", "required")
	}
	return nil
}

// flattenText accepts either a JSON string or a list of strings.
func flattenText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return strings.TrimSpace(strings.Join(many, " | "))
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
