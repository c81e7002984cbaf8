package shader

// ShaderBuilderOption is a function that configures a shader during construction.
type ShaderBuilderOption func(*shader)

// WithPreProcessor is an option builder that expands @oxy: annotations before compilation.
//
// Parameters:
//   - pp: the pre-processor to run over the source
//
// Returns:
//   - ShaderBuilderOption: a function that applies the pre-processor option to a shader
func WithPreProcessor(pp PreProcessor) ShaderBuilderOption {
	return func(s *shader) {
		s.pp = pp
	}
}

// WithEntryPoint is an option builder that names the entry function instead of taking the first
// function carrying the stage attribute.
//
// Parameters:
//   - name: the entry function name
//
// Returns:
//   - ShaderBuilderOption: a function that applies the entry point option to a shader
func WithEntryPoint(name string) ShaderBuilderOption {
	return func(s *shader) {
		s.entryOverride = name
	}
}

// WithBindingSize is an option builder that sets the byte size of a buffer binding, for
// declarations whose size cannot be derived from the source such as runtime-sized arrays.
//
// Parameters:
//   - name: the WGSL variable name of the buffer binding
//   - size: the buffer size in bytes
//
// Returns:
//   - ShaderBuilderOption: a function that applies the binding size option to a shader
func WithBindingSize(name string, size uint64) ShaderBuilderOption {
	return func(s *shader) {
		s.bindingSizes[name] = size
	}
}
