// Package download is the host download facility: it takes a blob URL and a
// filename, hands back an identifier once the save is enqueued, and writes the
// payload to the download directory in the background.
package download
