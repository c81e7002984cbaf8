package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
)

// wgslVertexFormatMap maps WGSL type names to their corresponding backend vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {backend.VertexFloat32, 4},
	"vec2f":     {backend.VertexFloat32x2, 8},
	"vec2<f32>": {backend.VertexFloat32x2, 8},
	"vec3f":     {backend.VertexFloat32x3, 12},
	"vec3<f32>": {backend.VertexFloat32x3, 12},
	"vec4f":     {backend.VertexFloat32x4, 16},
	"vec4<f32>": {backend.VertexFloat32x4, 16},
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	// The type capture (.+) is greedy to handle parameterized types like array<T, N>.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> camera: CameraUniform;
	// or handle types: @group(1) @binding(0) var diffuseTexture: texture_2d<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// StageGroup returns the bind group a stage's resources are declared in. Vertex resources live in
// @group(0) and fragment resources in @group(1), matching the group the backend binds each
// stage's SetShaderResources payload to.
//
// Parameters:
//   - stage: the shader stage
//
// Returns:
//   - int: the WGSL group index
func StageGroup(stage command.ShaderStage) int {
	return int(stage)
}

// parseBindings extracts the resource declarations of one bind group from WGSL source code.
// Uniform and storage buffers are sized from the struct layouts declared in the same source.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - group: the group whose declarations to collect
//
// Returns:
//   - []parsedBinding: the declarations sorted by binding index
func parseBindings(source string, group int) []parsedBinding {
	cleaned := stripComments(source)
	structSizes := computeStructSizes(parseStructBlocks(cleaned))

	var result []parsedBinding
	for _, match := range bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		g, _ := strconv.Atoi(match[1])
		if g != group {
			continue
		}
		binding, _ := strconv.Atoi(match[2])
		addressSpace := strings.TrimSpace(match[3])
		typeName := strings.TrimSpace(match[5])

		pb := parsedBinding{
			name:    strings.TrimSpace(match[4]),
			slot:    uint32(binding),
			kind:    classifyResource(addressSpace, typeName),
			storage: strings.HasPrefix(addressSpace, "storage"),
		}
		if pb.kind == command.BindConstantBuffer {
			if layout, ok := resolveTypeLayout(typeName, structSizes); ok {
				pb.size = layout.size
			}
		}
		result = append(result, pb)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].slot < result[j].slot
	})
	return result
}

// parseVertexLayout extracts the vertex input layout from WGSL source code.
// Every struct that is a pure vertex input (has @location attributes but no @builtin fields)
// becomes one buffer slot, numbered in declaration order. Structs whose name contains
// "Instance" step per instance. Structs containing unsupported types are skipped.
//
// Parameters:
//   - source: the raw WGSL source code string
//
// Returns:
//   - backend.InputLayoutDescriptor: the slots and attributes
//   - int: the per-instance slot, or -1 if there is none
func parseVertexLayout(source string) (backend.InputLayoutDescriptor, int) {
	cleaned := stripComments(source)
	var desc backend.InputLayoutDescriptor
	instanceSlot := -1

	for _, ps := range parseStructBlocks(cleaned) {
		if !isVertexInputStruct(ps) {
			continue
		}
		slot := uint32(len(desc.Slots))
		attrs, stride, ok := buildVertexAttributes(ps, slot)
		if !ok {
			continue
		}
		perInstance := strings.Contains(strings.ToLower(ps.name), "instance")
		if perInstance && instanceSlot < 0 {
			instanceSlot = int(slot)
		}
		desc.Slots = append(desc.Slots, backend.VertexSlot{Stride: stride, PerInstance: perInstance})
		desc.Attributes = append(desc.Attributes, attrs...)
	}

	return desc, instanceSlot
}

// parseEntryPoint extracts the entry point function name for the given stage
// from WGSL source. Returns an empty string if no matching entry point annotation is found.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - stage: the stage to search for
//
// Returns:
//   - string: the entry point function name, or empty string if not found
func parseEntryPoint(source string, stage command.ShaderStage) string {
	cleaned := stripComments(source)

	var re *regexp.Regexp
	switch stage {
	case command.StageVertex:
		re = vertexEntryRegex
	case command.StageFragment:
		re = fragmentEntryRegex
	default:
		return ""
	}

	if match := re.FindStringSubmatch(cleaned); match != nil {
		return match[1]
	}
	return ""
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}

	return structs
}

// parseStructFields parses the body of a struct block into individual fields,
// extracting @location and @builtin attributes along with the field name and type
//
// Parameters:
//   - body: the content between { and } of a struct declaration
//
// Returns:
//   - []parsedField: all fields found in the struct body
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{location: -1}
		if builtinRegex.MatchString(line) {
			field.isBuiltin = true
		}
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}

	return fields
}
