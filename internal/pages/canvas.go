// Package pages resolves navigation selections to page renders and collects
// their output as an ordered element stream.
package pages

import "fmt"

type Kind string

const (
	KindMarkdown Kind = "markdown"
	KindInfo     Kind = "info"
	KindWarning  Kind = "warning"
	KindError    Kind = "error"
	KindCode     Kind = "code"
	KindMetric   Kind = "metric"
	KindOverlay  Kind = "overlay"
	KindData     Kind = "data"
)

// Element is one rendered UI element.
type Element struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	Label    string `json:"label,omitempty"`
	Value    any    `json:"value,omitempty"`
	Language string `json:"language,omitempty"`
}

// Canvas collects elements in render order. It is used by one render at a
// time and is not safe for concurrent use.
type Canvas struct {
	elements []Element
}

func NewCanvas() *Canvas {
	return &Canvas{elements: []Element{}}
}

func (c *Canvas) add(e Element) {
	c.elements = append(c.elements, e)
}

func (c *Canvas) Markdown(format string, args ...any) {
	c.add(Element{Kind: KindMarkdown, Text: sprintf(format, args...)})
}

func (c *Canvas) Info(format string, args ...any) {
	c.add(Element{Kind: KindInfo, Text: sprintf(format, args...)})
}

func (c *Canvas) Warning(format string, args ...any) {
	c.add(Element{Kind: KindWarning, Text: sprintf(format, args...)})
}

func (c *Canvas) Error(format string, args ...any) {
	c.add(Element{Kind: KindError, Text: sprintf(format, args...)})
}

func (c *Canvas) Code(text, language string) {
	c.add(Element{Kind: KindCode, Text: text, Language: language})
}

func (c *Canvas) Metric(label string, value any) {
	c.add(Element{Kind: KindMetric, Label: label, Value: value})
}

// Overlay is a blocking dialog for unrecoverable errors.
func (c *Canvas) Overlay(title, text string) {
	c.add(Element{Kind: KindOverlay, Label: title, Text: text})
}

// Data attaches structured output, such as a table, under label.
func (c *Canvas) Data(label string, value any) {
	c.add(Element{Kind: KindData, Label: label, Value: value})
}

// Elements returns a copy of the rendered elements.
func (c *Canvas) Elements() []Element {
	return append([]Element{}, c.elements...)
}

func (c *Canvas) Len() int {
	return len(c.elements)
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
