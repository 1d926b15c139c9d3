// Package artifacts encodes mapping results as the JSON documents consumed by
// downstream export and routing tools, and publishes them to a sink.
//
// Every document has a fixed file name. Layer-keyed documents keep layer
// declaration order both when written and when read back.
package artifacts
