// Package assemblyai implements the provider API for AssemblyAI-compatible
// speech-analysis services: raw audio upload, job creation with a fixed
// analysis feature set, and job record retrieval.
package assemblyai
