// Package matter assembles the core stack into a Node: UDP transport,
// system layer, session and exchange managers, PASE pairing, the
// Interaction Model engine and the CASE resumption cache.
//
// # Reading an attribute
//
//	cfg, err := config.Load("node.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	node, err := matter.NewNode(matter.NodeConfig{Config: cfg})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	s, err := node.PairPASE(ctx, peer, 20202021)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	values, err := node.Read(ctx, s, matter.AttributePath{Endpoint: 0, Cluster: 0x0028, Attribute: &vendorName})
//
// # Serving attributes
//
// A node configured with a Source answers Read Requests from peers that
// paired with it through OpenPairingWindow.
package matter
