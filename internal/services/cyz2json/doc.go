// Package cyz2json wraps the external cyz2json converter binary that turns
// raw .cyz acquisition files into structured JSON documents.
package cyz2json
