// Places ordered lists of reactions on messages.
//
// The transport is allowed to reorder concurrent reaction calls, so each symbol in a list is scheduled at a fixed offset (`index * Interval`) from the first one. Assuming each send completes within one interval, reactions display in submission order. This is best-effort: under latency spikes ordering may still invert.
//
// All reactions requested for one message form a single task which is cancelled as a unit, for example when the message is deleted.
package reactions
