// Package deps checks that the external binaries subvoice shells out to are
// installed: ffmpeg (with libmp3lame), ffprobe, edge-tts and uvx.
package deps
