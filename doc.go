package filter

// This package defines common methods and operations for filtering a local photo and video library by capture date, distance to a target location and media type, and for materializing the matches as exports, thumbnails and path lists.
