// Package id provides ID generation helpers used across services.
package id

import (
	nanoid "github.com/matoous/go-nanoid/v2"
)

const DefaultLength = 21

const (
	PrefixJob         = "job"
	PrefixJobItem     = "itm"
	PrefixProfile     = "prof"
	PrefixBinding     = "bind"
	PrefixComparison  = "cmp"
	PrefixVariant     = "var"
	PrefixRating      = "rate"
	PrefixSession     = "sess"
	PrefixUserSession = "usr"
	PrefixPrefetch    = "pf"
)

func New(prefix string) string {
	id, err := nanoid.New(DefaultLength)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + id
}

func NewWithLength(prefix string, length int) string {
	id, err := nanoid.New(length)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + id
}

func NewJob() string         { return New(PrefixJob) }
func NewJobItem() string     { return New(PrefixJobItem) }
func NewProfile() string     { return New(PrefixProfile) }
func NewBinding() string     { return New(PrefixBinding) }
func NewComparison() string  { return New(PrefixComparison) }
func NewVariant() string     { return New(PrefixVariant) }
func NewRating() string      { return New(PrefixRating) }
func NewSession() string     { return New(PrefixSession) }
func NewUserSession() string { return New(PrefixUserSession) }
func NewPrefetch() string    { return New(PrefixPrefetch) }
