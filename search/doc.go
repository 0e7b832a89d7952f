// Copyright 2025 Quarry AI
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package search provides vector and hybrid retrieval over stored chunks.
//
// The Engine type embeds the query text, dispatches to the configured
// chunk repository, and for hybrid mode fuses the vector and keyword
// candidate lists with weighted reciprocal rank fusion. Backends without
// a lexical index degrade to vector-only search; the degradation is
// reported on the result rather than hidden.
//
// Search never raises a backend failure to its caller: a failed query
// logs the error and returns an empty result, so retrieval outages
// degrade answers instead of crashing them.
package search
