package youtube

// sampleVideoJSON is representative yt-dlp -J output for a single video,
// trimmed to the fields this package reads.
const sampleVideoJSON = `{
  "id": "dQw4w9WgXcQ",
  "title": "Test Video",
  "description": "A description",
  "duration": 212.0,
  "tags": ["music", "classic"],
  "categories": ["Music"],
  "thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
  "upload_date": "20091025",
  "uploader": "Test Channel",
  "view_count": 1000000,
  "is_live": false,
  "age_limit": 0
}`

// samplePlaylistJSON is yt-dlp -J output when the URL resolves to a playlist.
const samplePlaylistJSON = `{
  "id": "PLxyz",
  "title": "Some Playlist",
  "entries": [
    {"id": "dQw4w9WgXcQ", "title": "Test Video 1"},
    {"id": "abcdefghijk", "title": "Test Video 2"}
  ]
}`
