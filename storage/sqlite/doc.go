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


// Package sqlite implements the unified storage backend on SQLite.
//
// A chunk's text, metadata, vector, and full-text index row are written
// in one transaction, so this backend has no split-write failure mode.
// Keyword search runs on an FTS5 table, which makes native hybrid
// search available. Vector similarity is a full scan over the
// collection's rows; suitable for the corpus sizes a single SQLite file
// holds.
package sqlite
