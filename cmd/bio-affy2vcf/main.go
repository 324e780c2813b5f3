// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command bio-affy2vcf converts Affymetrix genotyping output to VCF.
package main

import (
	"github.com/grailbio/base/grail"
	"github.com/grailbio/microarray/cmd/bio-affy2vcf/cmd"
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmd.Run()
}
