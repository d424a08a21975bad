// Package playlist renders HLS media playlists for segmented streams.
//
// A Writer collects segment entries in sequence order while a transcode is
// running and renders them as an m3u8 media playlist:
//   - EVENT playlists while the stream is live
//   - VOD playlists with an end tag once Finish is called
//
// The target duration is derived from the longest segment. WriteFile replaces
// the playlist atomically so HTTP clients never observe a truncated file.
package playlist
