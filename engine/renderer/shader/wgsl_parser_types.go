package shader

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
)

// vertexFormatInfo holds the backend vertex format and its byte size for offset calculation
type vertexFormatInfo struct {
	format backend.VertexFormat
	size   uint32
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type.
// Used to size the constant buffer behind a uniform binding.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// parsedBinding is one @group/@binding declaration of the group that belongs to the shader's stage
type parsedBinding struct {
	name string
	slot uint32
	kind command.BindingKind
	size uint64
	// storage is set for var<storage> buffers.
	storage bool
}
