package models

// Site is a logical site of a multi-site deployment; every member belongs to one
type Site struct {
	ID     int64
	Domain string
	Name   string
}
