// Package strategy holds the identity shared by pluggable domain policies.
package strategy

// Kind groups strategies that are interchangeable
type Kind string

// KindAllocation covers policies that spread a payment over obligations
const KindAllocation Kind = "allocation"

// Strategy identifies a pluggable policy in logs and API responses
type Strategy interface {
	Name() string
	Kind() Kind
	Description() string
}

// Descriptor implements Strategy for embedding
type Descriptor struct {
	name        string
	kind        Kind
	description string
}

// Describe builds a Descriptor
func Describe(name string, kind Kind, description string) Descriptor {
	return Descriptor{name: name, kind: kind, description: description}
}

func (d Descriptor) Name() string        { return d.name }
func (d Descriptor) Kind() Kind          { return d.kind }
func (d Descriptor) Description() string { return d.description }
