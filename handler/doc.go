// Package handler holds the method dispatch table a worker executes
// requests against.
//
// Each supported protocol.Method maps to one Func. Business logic such as
// market scanning, order routing or risk models lives outside this module
// and is plugged in with Register or, for typed params, RegisterDefinition:
//
//	r := handler.NewRegistry()
//	handler.RegisterDefinition(r, handler.NewDefinition(protocol.MethodExecuteOrder,
//	    func(ctx context.Context, p handler.ExecuteOrderParams) (map[string]any, error) {
//	        return router.Submit(ctx, p.Symbol, p.Action, p.Quantity)
//	    }))
//
// health.check is registered by NewRegistry.
package handler
