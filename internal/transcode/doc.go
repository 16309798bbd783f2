// Package transcode normalizes uploaded audio into the Opus-in-Ogg format the
// chat platform plays as a voice message, by shelling out to ffmpeg.
package transcode
