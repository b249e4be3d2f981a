package observability

import "time"

// Fields is a builder for structured log attributes, mirroring the
// key/value accumulation pattern used throughout the teacher's handlers
// (slog.With(...) chains) and jordigilh-kubernaut's shared/logging package.
type Fields map[string]interface{}

// NewFields returns an empty field set.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, resourceName string) Fields {
	f["resource_type"] = resourceType
	if resourceName != "" {
		f["resource_name"] = resourceName
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) CorrelationID(id string) Fields {
	if id != "" {
		f["correlation_id"] = id
	}
	return f
}

func (f Fields) AlertName(name string) Fields {
	if name != "" {
		f["alertname"] = name
	}
	return f
}

// Args flattens the field set into an alternating key/value slice suitable
// for slog.Info/Error/Warn's variadic args.
func (f Fields) Args() []interface{} {
	args := make([]interface{}, 0, len(f)*2)
	for k, v := range f {
		args = append(args, k, v)
	}
	return args
}
