package authz

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Capability is the requirement a protected operation declares.
type Capability struct {
	Name        string `json:"name" validate:"required,max=64"`
	MinimumRole Role   `json:"minimum_role" validate:"required,catalog_role"`
	Description string `json:"description,omitempty" validate:"max=256"`
}

// RequireRole declares a capability satisfied by minimum or any higher role.
func RequireRole(name string, minimum Role) Capability {
	return Capability{Name: name, MinimumRole: minimum}
}

// AdminOrAbove declares a capability satisfied by admin and super_admin.
func AdminOrAbove(name string) Capability {
	return RequireRole(name, RoleAdmin)
}

// adminOverride is the capability tenant checks test before ownership.
var adminOverride = AdminOrAbove("platform.admin_override")

// Describe returns a copy with the description set.
func (c Capability) Describe(description string) Capability {
	c.Description = description
	return c
}

// Validate checks the declaration. Failures wrap ErrMalformedCapability.
func (c Capability) Validate() error {
	if err := capabilityValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMalformedCapability, c.Name, err)
	}
	return nil
}

// wellFormed is the reflection-free subset of Validate used per request.
func (c Capability) wellFormed() bool {
	return c.Name != "" && c.MinimumRole.Valid()
}

var capabilityValidator = newCapabilityValidator()

func newCapabilityValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("catalog_role", func(fl validator.FieldLevel) bool {
		return Role(fl.Field().String()).Valid()
	})
	return v
}

// Registry holds the capabilities an application declares. Registration
// happens during startup; lookups afterwards are read-only.
type Registry struct {
	byName map[string]Capability
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Capability)}
}

// Register validates and stores a capability.
func (r *Registry) Register(c Capability) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, exists := r.byName[c.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCapability, c.Name)
	}
	r.byName[c.Name] = c
	r.order = append(r.order, c.Name)
	return nil
}

// MustRegister registers every capability and panics on the first failure.
func (r *Registry) MustRegister(capabilities ...Capability) *Registry {
	for _, c := range capabilities {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// MustLookup is Lookup for names known at compile time.
func (r *Registry) MustLookup(name string) Capability {
	c, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("authz: capability %q not registered", name))
	}
	return c
}

// All returns the capabilities in registration order.
func (r *Registry) All() []Capability {
	out := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
