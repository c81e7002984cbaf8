package scene

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// initialInstanceCapacity is the record count allocated for a new material bucket.
	initialInstanceCapacity = 4
	// linearGrowthThreshold is the record count from which buckets grow linearly instead of doubling.
	linearGrowthThreshold = 64
)

var (
	// ErrInvalidInstance is returned for a handle that does not reference a live instance.
	ErrInvalidInstance = errors.New("scene: invalid instance handle")

	// ErrModelIndex is returned when an instance references a model the cache does not hold.
	ErrModelIndex = errors.New("scene: model index out of range")

	// ErrMaterialDisposed is returned when adding an instance with a disposed material.
	ErrMaterialDisposed = errors.New("scene: material is disposed")
)

// InstanceRecord is one model instance inside a material bucket.
// Records are never compacted; a disposed record keeps its slot with InUse false until reused.
type InstanceRecord struct {
	Transform  mgl32.Mat4
	InUse      bool
	LayerIndex int
	ModelIndex int
}

// MaterialBucket holds every instance record drawn with one material.
type MaterialBucket struct {
	Material  material.Material
	Instances []InstanceRecord
}

// InstanceHandle references one instance record of a geometry cache.
type InstanceHandle struct {
	bucket int
	slot   int
}

// Valid reports whether the handle was returned by AddInstance.
func (h InstanceHandle) Valid() bool {
	return h.slot >= 0 && h.bucket >= 0
}

// InvalidInstance is the zero-value replacement for a handle that references nothing.
var InvalidInstance = InstanceHandle{bucket: -1, slot: -1}

// allocate claims a free record slot, scanning from the end. When every record is in use the bucket
// grows and the first new record is returned.
func (b *MaterialBucket) allocate() int {
	for i := len(b.Instances) - 1; i >= 0; i-- {
		if !b.Instances[i].InUse {
			return i
		}
	}

	old := len(b.Instances)
	grown := old + linearGrowthThreshold
	if old < linearGrowthThreshold {
		grown = max(old<<1, initialInstanceCapacity)
	}
	records := make([]InstanceRecord, grown)
	copy(records, b.Instances)
	b.Instances = records
	return old
}

// newMaterialBucket creates a bucket with the initial record allocation, all free.
func newMaterialBucket(mat material.Material) *MaterialBucket {
	return &MaterialBucket{
		Material:  mat,
		Instances: make([]InstanceRecord, initialInstanceCapacity),
	}
}

// liveCount returns the number of records in use.
func (b *MaterialBucket) liveCount() int {
	n := 0
	for i := range b.Instances {
		if b.Instances[i].InUse {
			n++
		}
	}
	return n
}
