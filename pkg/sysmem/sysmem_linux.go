// Copyright 2021 - 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package sysmem

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// NewProber returns the Linux /proc/meminfo + /proc/self/statm prober.
var NewProber = func() Prober { return linuxProber{} }

type linuxProber struct{}

// Usage parses /proc/meminfo for system-wide fields and
// /proc/self/statm for this process's resident/virtual split, exactly
// as a "name: value [kB]" parser over the recognized fields
// MemTotal, MemFree, Buffers, Cached.
func (linuxProber) Usage() (Usage, error) {
	sys, err := parseMeminfo("/proc/meminfo")
	if err != nil {
		return Usage{}, err
	}
	proc, err := parseStatm("/proc/self/statm")
	if err != nil {
		return Usage{}, err
	}

	u := Usage{
		TotalBytes:    sys["MemTotal"],
		FreeBytes:     sys["MemFree"] + sys["Buffers"] + sys["Cached"],
		ResidentBytes: proc.resident,
		VirtualBytes:  proc.virt,
		SharedBytes:   proc.shared,
	}
	if u.ResidentBytes > u.SharedBytes {
		u.RegularBytes = u.ResidentBytes - u.SharedBytes
	}
	return u, nil
}

func parseMeminfo(path string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]uint64)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		if len(fields) > 1 && fields[1] == "kB" {
			v *= 1024
		}
		out[name] = v
	}
	return out, sc.Err()
}

type statm struct {
	virt, resident, shared uint64
}

// parseStatm reads the whitespace-separated page counts in
// /proc/self/statm (size resident shared text lib data dt) and
// converts them to bytes using the system page size.
func parseStatm(path string) (statm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return statm{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return statm{}, nil
	}
	pageSize := uint64(os.Getpagesize())
	size, _ := strconv.ParseUint(fields[0], 10, 64)
	resident, _ := strconv.ParseUint(fields[1], 10, 64)
	shared, _ := strconv.ParseUint(fields[2], 10, 64)
	return statm{
		virt:     size * pageSize,
		resident: resident * pageSize,
		shared:   shared * pageSize,
	}, nil
}
