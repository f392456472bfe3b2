package models

const (
	MetaBook    = "book"
	MetaChunkID = "chunk_id"
	MetaSource  = "source"
)
