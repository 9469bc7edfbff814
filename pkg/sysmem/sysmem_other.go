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

//go:build !linux

package sysmem

// NewProber returns a conservative fixed-estimate prober for
// platforms this module has no native probe for.
var NewProber = func() Prober { return defaultProber{} }

type defaultProber struct{}

func (defaultProber) Usage() (Usage, error) {
	const assumedTotal = 8 << 30
	return Usage{
		TotalBytes: assumedTotal,
		FreeBytes:  assumedTotal / 4,
	}, nil
}
