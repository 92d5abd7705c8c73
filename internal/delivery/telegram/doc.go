// Package telegram uploads finished segments through the Bot API.
//
// MP4 files go out as sendVideo with streaming enabled so chats can play
// them inline; anything else falls back to sendDocument. Uploads stream from
// disk and are paced by a token bucket.
package telegram
