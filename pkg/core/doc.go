// Package core defines the shared language of the glyphcore system.
//
// This package contains:
//   - Domain entities (Vector, TensionSample, AttractorManifold, IdentityGlyph)
//   - Derived read models (ConvergenceStatus, ConsciousnessSnapshot, EntanglementMatrix)
//   - The typed engine configuration (EngineConfig) and its validation
//   - The error taxonomy shared by every engine component
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
