// Package arena provides the bump allocator that backs every controller.
//
// All sizing happens at configuration time. Once a controller is started
// it only touches memory it already carved:
//
//   - [Arena]: bump allocator over a []byte
//   - [Allocator]: the interface controllers consume
//   - [Float64s]: typed, zeroed carve helper
//   - [Tracked]: call-counting wrapper for tests
package arena
