// Package ws bridges websocket connections to PTY sessions.
//
// One connection owns one session. The client sends JSON text frames:
//
//	{"type":"i","d":"ls\n"}            fast-path input
//	{"type":"input","data":"ls\n"}     legacy input synonym
//	{"type":"resize","rows":30,"cols":100}
//
// The first resize frame carries the real geometry of the client's terminal
// and is what spawns the PTY process, so the child paints correctly from its
// first frame. Output travels as text frames tagged with a leading "o"
// followed by decoded PTY text, with no JSON envelope. Malformed frames are
// ignored without dropping the connection.
package ws
