// pre_processor.go implements the WGSL shader pre-processor. It scans shader source code
// for @oxy: annotations and replaces them with registered struct sources or generated
// constant declarations.
package shader

import (
	"fmt"
	"strings"
	"sync"
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	mu sync.RWMutex

	// includes maps include keys to the WGSL source injected by @oxy:include.
	includes map[string]string

	// constants maps constant names to the values emitted by @oxy:const.
	constants map[string]uint32
}

// PreProcessor expands @oxy: annotations in WGSL source. Registrations may happen from any
// goroutine; Process is safe to call concurrently with them.
type PreProcessor interface {
	// RegisterInclude makes source available to @oxy:include under key, replacing any
	// previous registration.
	//
	// Parameters:
	//   - key: the include key
	//   - source: the WGSL text to inject
	RegisterInclude(key, source string)

	// RegisterConstant makes a u32 constant available to @oxy:const.
	//
	// Parameters:
	//   - name: the WGSL identifier to declare
	//   - value: the constant's value
	RegisterConstant(name string, value uint32)

	// Process replaces every annotation in source with its expansion.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or references an unknown key
	Process(source string) (string, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with empty registries.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		includes:  make(map[string]string),
		constants: make(map[string]uint32),
	}
}

func (p *preProcessor) RegisterInclude(key, source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.includes[key] = source
}

func (p *preProcessor) RegisterConstant(name string, value uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.constants[name] = value
}

func (p *preProcessor) Process(source string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			src, ok := p.includes[a.Arg]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include key %q", a.Line, a.Arg)
			}
			out = append(out, src)
		case AnnotationTypeConst:
			v, ok := p.constants[a.Arg]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:const name %q", a.Line, a.Arg)
			}
			out = append(out, fmt.Sprintf("const %s: u32 = %du;", a.Arg, v))
		}
	}
	return strings.Join(out, "\n"), nil
}
