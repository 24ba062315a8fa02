package feeds

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"livetv-guide/model"
)

var (
	// attributeRegex matches M3U attributes in the format key="value"
	attributeRegex = regexp.MustCompile(`([a-zA-Z0-9_-]+)="([^"]*)"`)
	extinfRegex    = regexp.MustCompile(`^#EXTINF:\s*-?\d+`)
)

// ParsePlaylist reads an extended M3U playlist. Entries whose header is
// malformed, or which have no display name or stream URL, are skipped.
// Duplicate entries are preserved in input order.
func ParsePlaylist(r io.Reader) ([]model.Channel, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		channels []model.Channel
		pending  *model.Channel
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXTINF:") {
			pending = parseExtinf(line)
			continue
		}

		// #EXTM3U, #EXTVLCOPT, #EXTGRP and friends
		if strings.HasPrefix(line, "#") {
			continue
		}

		if pending != nil {
			pending.Stream = line
			channels = append(channels, *pending)
			pending = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return channels, fmt.Errorf("error reading playlist: %w", err)
	}

	return channels, nil
}

func parseExtinf(line string) *model.Channel {
	if !extinfRegex.MatchString(line) {
		return nil
	}

	channel := &model.Channel{}
	var tvgName string

	matches := attributeRegex.FindAllStringSubmatch(line, -1)
	lineWithoutPairs := line

	for _, match := range matches {
		key := strings.TrimSpace(match[1])
		value := strings.TrimSpace(match[2])

		switch strings.ToLower(key) {
		case "tvg-id":
			channel.ID = value
		case "tvg-chno", "channel-number":
			channel.Number = parseChannelNumber(value)
		case "tvg-name":
			tvgName = value
		case "tvg-logo":
			channel.Icon = value
		}
		lineWithoutPairs = strings.Replace(lineWithoutPairs, match[0], "", 1)
	}

	if commaSplit := strings.SplitN(lineWithoutPairs, ",", 2); len(commaSplit) > 1 {
		channel.Name = strings.TrimSpace(commaSplit[1])
	}
	if channel.Name == "" {
		channel.Name = tvgName
	}
	if channel.Name == "" {
		return nil
	}

	return channel
}

func parseChannelNumber(value string) *int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}
